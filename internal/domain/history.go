package domain

// MaxHistory bounds the recent-history list.
const MaxHistory = 20

// PushHistory returns a new list with s at the front, any earlier entry of
// the same song removed, truncated to MaxHistory. The input is not modified.
func PushHistory(history []Song, s Song) []Song {
	out := make([]Song, 0, min(len(history)+1, MaxHistory))
	out = append(out, s)
	for _, h := range history {
		if len(out) == MaxHistory {
			break
		}
		if h.ID == s.ID {
			continue
		}
		out = append(out, h)
	}
	return out
}
