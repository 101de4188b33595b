package models

import "fmt"

// MockEpisodeCount is the number of episodes served in mock mode.
const MockEpisodeCount = 19

// MockEpisode returns the deterministic development episode numbered i.
func MockEpisode(i int) Episode {
	return NewEpisode(
		IdentifierFromInt(int64(i)),
		fmt.Sprintf("Podcast #%d", i),
		fmt.Sprintf("Description of podcast #%d", i),
		fmt.Sprintf("http://example.com/podcasts/%d", i),
		i,
		12341627541915+int64(i),
		Tag(fmt.Sprintf("Tag #%d", i%100)),
	)
}

// MockEpisodes returns episodes 1 through MockEpisodeCount.
func MockEpisodes() []Episode {
	out := make([]Episode, 0, MockEpisodeCount)
	for i := 1; i <= MockEpisodeCount; i++ {
		out = append(out, MockEpisode(i))
	}
	return out
}
