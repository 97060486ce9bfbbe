// Package sdpx holds pure transforms over session descriptions.
package sdpx

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pion/sdp/v3"
)

var ErrMalformedSDP = errors.New("malformed sdp")

// PreferCodec moves the payload types of the named codec to the front of every video
// media section. The other payload types keep their relative order. The input is returned
// unchanged when no section needs reordering, so applying it twice equals applying it once.
func PreferCodec(raw, codec string) (string, error) {
	if raw == "" || codec == "" {
		return raw, nil
	}
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return raw, fmt.Errorf("%w: %v", ErrMalformedSDP, err)
	}

	changed := false
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "video" {
			continue
		}
		preferred := payloadTypes(md, codec)
		if len(preferred) == 0 {
			continue
		}
		formats := reorder(md.MediaName.Formats, preferred)
		if !slices.Equal(formats, md.MediaName.Formats) {
			md.MediaName.Formats = formats
			changed = true
		}
	}
	if !changed {
		return raw, nil
	}

	out, err := desc.Marshal()
	if err != nil {
		return raw, fmt.Errorf("marshal sdp: %w", err)
	}
	return string(out), nil
}

// payloadTypes lists, in rtpmap order, the payload types of md mapped to codec.
func payloadTypes(md *sdp.MediaDescription, codec string) []string {
	var out []string
	for _, a := range md.Attributes {
		if a.Key != "rtpmap" {
			continue
		}
		pt, rest, ok := strings.Cut(a.Value, " ")
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(rest, "/")
		if strings.EqualFold(name, codec) && slices.Contains(md.MediaName.Formats, pt) {
			out = append(out, pt)
		}
	}
	return out
}

func reorder(formats, preferred []string) []string {
	out := make([]string, 0, len(formats))
	out = append(out, preferred...)
	for _, f := range formats {
		if !slices.Contains(preferred, f) {
			out = append(out, f)
		}
	}
	return out
}
