// Package ids mints and validates the public kf_id identifiers every
// entity carries, a two-letter type prefix plus eight base32 characters.
package ids

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

// Alphabet is the Crockford-style base32 alphabet used for kf_ids.
// I, L, O and U are excluded to avoid ambiguity in printed ids.
const Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Well-known entity prefixes.
const (
	PrefixRelease     = "RE"
	PrefixTask        = "TA"
	PrefixTaskService = "TS"
	PrefixEvent       = "EV"
	PrefixStudy       = "SD"
	PrefixReleaseNote = "RN"
)

var (
	kfIDPattern = regexp.MustCompile(`^[A-Z]{2}_[0-9A-HJ-NP-TV-Z]{8}$`)

	// Studies are minted upstream with a looser alphabet than ours.
	studyIDPattern = regexp.MustCompile(`^SD_[0-9A-Z]{8}$`)
)

// New generates a kf_id for the given prefix, e.g. New("RE") -> "RE_3GX92KQA".
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("ids: rand.Read: %v", err))
	}
	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return prefix + "_" + string(buf)
}

// Validate checks that id is a well-formed kf_id carrying the given prefix.
func Validate(prefix, id string) error {
	if !kfIDPattern.MatchString(id) {
		return fmt.Errorf("%s is not a valid kf_id", id)
	}
	if id[:2] != prefix {
		return fmt.Errorf("%s does not have prefix %s", id, prefix)
	}
	return nil
}

// ValidateStudy checks a study id. The error message is part of the API
// contract and is surfaced verbatim to callers.
func ValidateStudy(id string) error {
	if !studyIDPattern.MatchString(id) {
		return fmt.Errorf("%s is not a valid study kf_id", id)
	}
	return nil
}
