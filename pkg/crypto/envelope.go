package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Envelope is a signed request
// The signature covers keccak256 of the exact payload bytes.
type Envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"` // 0x-prefixed [R || S || V]
}

// Seal marshals payload and signs it
func (s *Signer) Seal(payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	sig, err := s.SignMessage(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Payload: data, Signature: hexutil.Encode(sig)}, nil
}

// Open verifies the envelope and returns the address that signed it
func Open(env Envelope) (common.Address, error) {
	if len(env.Payload) == 0 {
		return common.Address{}, fmt.Errorf("missing payload")
	}
	sig, err := hexutil.Decode(env.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	return RecoverAddress(crypto.Keccak256(env.Payload), sig)
}

// Decode verifies the envelope and unmarshals its payload into v
func Decode(env Envelope, v any) (common.Address, error) {
	signer, err := Open(env)
	if err != nil {
		return common.Address{}, err
	}
	if err := DecodePayload(env, v); err != nil {
		return common.Address{}, err
	}
	return signer, nil
}

// DecodePayload unmarshals the payload into v without checking the signature
// Fields v does not declare are an error.
func DecodePayload(env Envelope, v any) error {
	dec := json.NewDecoder(bytes.NewReader(env.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
