// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

// muxArgs joins one video-only and one audio-only elementary stream into an
// MP4 container without re-encoding.
func muxArgs(video, audio, output string) []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-y",
		"-i", video,
		"-i", audio,
		"-c:v", "copy",
		"-c:a", "copy",
		"-f", "mp4",
		output,
	}
}
