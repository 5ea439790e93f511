package adapter

import "crypto/rand"

// CryptoRandom is the default RandomSource, backed by crypto/rand.
type CryptoRandom struct{}

func (CryptoRandom) Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

var _ RandomSource = CryptoRandom{}
