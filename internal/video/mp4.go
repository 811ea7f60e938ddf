// Package video holds the container-format boundary: a cheap structural
// sniff used at submission time, and the frame decoding collaborator used by
// the pipeline engine.
package video

// SniffMP4 reports whether data plausibly starts with an ISO BMFF (MP4)
// container. It checks the first box header for an "ftyp" type and nothing
// more; full validation happens when frames are actually decoded.
func SniffMP4(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	return string(data[4:8]) == "ftyp"
}
