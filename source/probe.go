package source

import (
	"github.com/erparts/reisen"

	"hpcplayer/playerrors"
)

// ProbeFormats opens the container just long enough to read stream metadata
// and closes it again without ever calling OpenDecode. It exists for client
// code that must size a video sink (e.g. render.NewDefaultVideoSink) before
// a DefaultSource has had a chance to report OnSourcePrepared, mirroring the
// teacher's audio_context.go pre-probe of GetMediaAudioSampleRate ahead of
// actual playback.
func ProbeFormats(filename string) ([]Format, error) {
	media, err := reisen.NewMedia(filename)
	if err != nil {
		return nil, playerrors.New(playerrors.StatusInvalidFormat, "source.probe", err)
	}
	defer media.Close()

	videoStreams := media.VideoStreams()
	audioStreams := media.AudioStreams()
	if len(videoStreams) == 0 {
		return nil, playerrors.New(playerrors.StatusInvalidFormat, "source.probe", nil)
	}

	videoStream := videoStreams[0]
	frNum, frDenom := videoStream.FrameRate()
	formats := []Format{{
		Type:         TrackVideo,
		Width:        videoStream.Width(),
		Height:       videoStream.Height(),
		FrameRateNum: frNum,
		FrameRateDen: frDenom,
		MimeType:     "video/h264",
	}}

	if len(audioStreams) > 0 {
		formats = append(formats, Format{
			Type:       TrackAudio,
			SampleRate: audioStreams[0].SampleRate(),
			MimeType:   "audio/pcm",
		})
	}

	return formats, nil
}
