package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID returns a random 21 character id with the given prefix, for example
// "ent_k2v0…". Prefixes make ids in logs and exports self describing.
func NewID(prefix string) string {
	id, err := gonanoid.Generate(idAlphabet, 21)
	if err != nil {
		// Generate only fails for invalid alphabets or sizes.
		panic(err)
	}
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
