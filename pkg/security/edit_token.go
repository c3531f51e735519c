package security

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// EditTokenLength is the length of every generated edit token.
const EditTokenLength = 20

// editTokenCharset deliberately omits characters that read ambiguously when
// printed (0/O, 1/l/I).
var editTokenCharset = []rune("ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789")

// GenerateEditToken produces the bearer secret handed to an Art Key's owner.
func GenerateEditToken() (string, error) {
	result := make([]rune, EditTokenLength)
	for i := 0; i < EditTokenLength; i++ {
		idx, err := randInt(len(editTokenCharset))
		if err != nil {
			return "", err
		}
		result[i] = editTokenCharset[idx]
	}
	return string(result), nil
}

// TokensEqual compares a presented token against the stored one without
// leaking timing information.
func TokensEqual(presented, stored string) bool {
	if presented == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}

func randInt(max int) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("invalid max %d", max)
	}
	var buff = make([]byte, 1)
	if _, err := rand.Read(buff); err != nil {
		return 0, err
	}
	return int(buff[0]) % max, nil
}
