package crypto

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint возвращает hex-encoded BLAKE2b-256 от действия, цели и payload.
// Payload предварительно компактится, поэтому пробелы в JSON не влияют на результат.
// Используется сервером, чтобы отличить повтор мутации от переиспользованного ключа.
func Fingerprint(action, target string, payload []byte) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create hash: %w", err)
	}

	var compact bytes.Buffer
	if len(payload) > 0 {
		if err := json.Compact(&compact, payload); err != nil {
			return "", fmt.Errorf("payload is not valid JSON: %w", err)
		}
	}

	// Разделитель не может встретиться в action и target
	_, _ = h.Write([]byte(action))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(target))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(compact.Bytes())

	return hex.EncodeToString(h.Sum(nil)), nil
}
