package vibevoice

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
)

// KeyPrefix namespaces cache entries in the shared backend so administrative
// scans and purges can target exactly this key family.
const KeyPrefix = "audio:"

// canonicalParams is the struct-based canonical form of a synthesis request.
// Struct fields marshal in declaration order, so the serialized bytes are
// independent of any map iteration order. Field set and order are part of
// the on-disk cache contract; changing either invalidates every stored entry.
//
// volume_gain_db is deliberately included: it changes audible output, so two
// requests differing only in gain must not share a payload.
type canonicalParams struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice"`
	Speed        float64 `json:"speed"`
	Pitch        float64 `json:"pitch"`
	Language     string  `json:"language"`
	VolumeGainDB float64 `json:"volume_gain_db"`
}

// CacheKey derives the deterministic cache key for a synthesis request:
// SHA-256 over the canonical parameter tuple, rendered as lowercase hex
// under the audio: namespace. Pure and total over valid requests.
func CacheKey(req *SynthesisRequest) string {
	c := canonicalParams{
		Text:         req.Text,
		Voice:        req.Voice,
		Speed:        roundParam(req.Speed),
		Pitch:        roundParam(req.Pitch),
		Language:     req.Language,
		VolumeGainDB: roundParam(req.VolumeGainDB),
	}
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return KeyPrefix + hex.EncodeToString(h[:])
}

// roundParam rounds to 4 decimals so float values that compare equal after
// JSON round-tripping always canonicalize to the same bytes.
func roundParam(f float64) float64 {
	return math.Round(f*10000) / 10000
}
