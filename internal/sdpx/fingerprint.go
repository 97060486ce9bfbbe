package sdpx

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeBytes    = 6
)

var ErrNoFingerprint = errors.New("no certificate fingerprint")

// Fingerprint returns the certificate fingerprint bytes of a description. The
// session-level attribute wins over media-level ones.
func Fingerprint(raw string) ([]byte, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSDP, err)
	}
	if v, ok := desc.Attribute("fingerprint"); ok {
		return parseFingerprint(v)
	}
	for _, md := range desc.MediaDescriptions {
		if v, ok := md.Attribute("fingerprint"); ok {
			return parseFingerprint(v)
		}
	}
	return nil, ErrNoFingerprint
}

// "sha-256 AB:CD:..."
func parseFingerprint(v string) ([]byte, error) {
	_, hash, ok := strings.Cut(strings.TrimSpace(v), " ")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoFingerprint, v)
	}
	b, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(hash), ":", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFingerprint, err)
	}
	if len(b) == 0 {
		return nil, ErrNoFingerprint
	}
	return b, nil
}

// VerificationCode derives the short code both participants can read aloud to compare
// their DTLS certificates. XOR makes it symmetric, so both ends display the same code.
// When only one fingerprint is available the code is derived from it alone.
func VerificationCode(localSDP, remoteSDP string) (string, error) {
	local, lerr := Fingerprint(localSDP)
	remote, rerr := Fingerprint(remoteSDP)
	switch {
	case lerr != nil && rerr != nil:
		return "", ErrNoFingerprint
	case lerr != nil:
		return encodeCode(remote), nil
	case rerr != nil:
		return encodeCode(local), nil
	}

	n := min(len(local), len(remote))
	mixed := make([]byte, n)
	for i := 0; i < n; i++ {
		mixed[i] = local[i] ^ remote[i]
	}
	return encodeCode(mixed), nil
}

func encodeCode(b []byte) string {
	var sb strings.Builder
	for i := 0; i < codeBytes && i < len(b); i++ {
		if i == codeBytes/2 {
			sb.WriteByte('-')
		}
		sb.WriteByte(codeAlphabet[int(b[i])%len(codeAlphabet)])
	}
	return sb.String()
}
