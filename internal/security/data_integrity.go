// Package security signs API responses and authenticates admin requests
// with secp256k1 keys.
package security

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// SignatureAlgorithm names the scheme in signed payloads
const SignatureAlgorithm = "secp256k1-keccak256"

// ErrInvalidSignature is returned when a signature is malformed or does not match
var ErrInvalidSignature = errors.New("invalid signature")

// DataIntegrityService signs payloads with the service key
type DataIntegrityService struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	validity   time.Duration
}

// NewDataIntegrityService loads a hex private key; an empty key generates an ephemeral one
func NewDataIntegrityService(keyHex string, validity time.Duration) (*DataIntegrityService, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if keyHex == "" {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		logrus.Warn("No signer key configured, using an ephemeral key")
	} else {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to load signer key: %w", err)
		}
	}
	if validity <= 0 {
		validity = 5 * time.Minute
	}

	s := &DataIntegrityService{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		validity:   validity,
	}
	logrus.Infof("Data integrity service initialized with signer %s", s.address.Hex())
	return s, nil
}

// Address returns the signer address
func (s *DataIntegrityService) Address() common.Address {
	return s.address
}

// SignBody signs keccak256(body)
func (s *DataIntegrityService) SignBody(body []byte) (string, error) {
	return s.signDigest(crypto.Keccak256(body))
}

// SignRequest signs the envelope of an HTTP request, see RequestDigest
func (s *DataIntegrityService) SignRequest(method, path string, expiry int64, body []byte) (string, error) {
	return s.signDigest(RequestDigest(method, path, expiry, body))
}

func (s *DataIntegrityService) signDigest(digest []byte) (string, error) {
	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	return hexutil.Encode(sig), nil
}

// RequestDigest binds a request body to its method, escaped path and expiry:
// keccak256(method "\n" path "\n" expiry "\n" body). The escaped path never
// contains a raw newline, so distinct envelopes never share a preimage.
func RequestDigest(method, path string, expiry int64, body []byte) []byte {
	header := fmt.Sprintf("%s\n%s\n%d\n", strings.ToUpper(method), path, expiry)
	return crypto.Keccak256([]byte(header), body)
}

// SignPayload returns the payload as a JSON object with a _signature member
// covering its canonical encoding
func (s *DataIntegrityService) SignPayload(payload interface{}) (map[string]interface{}, error) {
	fields, canonical, err := canonicalize(payload)
	if err != nil {
		return nil, err
	}
	sig, err := s.SignBody(canonical)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	fields["_signature"] = map[string]interface{}{
		"signature":  sig,
		"signer":     s.address.Hex(),
		"algorithm":  SignatureAlgorithm,
		"timestamp":  now.Unix(),
		"validUntil": now.Add(s.validity).Unix(),
	}
	return fields, nil
}

// VerifyPayload checks a payload produced by SignPayload and returns its signer
func VerifyPayload(signed map[string]interface{}) (common.Address, error) {
	meta, ok := signed["_signature"].(map[string]interface{})
	if !ok {
		return common.Address{}, fmt.Errorf("%w: missing signature metadata", ErrInvalidSignature)
	}
	sig, _ := meta["signature"].(string)
	claimed, _ := meta["signer"].(string)

	body := make(map[string]interface{}, len(signed))
	for k, v := range signed {
		if k != "_signature" {
			body[k] = v
		}
	}
	_, canonical, err := canonicalize(body)
	if err != nil {
		return common.Address{}, err
	}

	signer, err := RecoverSigner(canonical, sig)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(claimed) || common.HexToAddress(claimed) != signer {
		return common.Address{}, fmt.Errorf("%w: signer mismatch", ErrInvalidSignature)
	}
	return signer, nil
}

// RecoverSigner returns the address that produced sigHex over keccak256(body).
// Recovery ids 0/1 and 27/28 are both accepted.
func RecoverSigner(body []byte, sigHex string) (common.Address, error) {
	return recoverDigest(crypto.Keccak256(body), sigHex)
}

// RecoverRequestSigner returns the address that signed a request envelope
func RecoverRequestSigner(method, path string, expiry int64, body []byte, sigHex string) (common.Address, error) {
	return recoverDigest(RequestDigest(method, path, expiry, body), sigHex)
}

func recoverDigest(digest []byte, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// canonicalize decodes payload into a JSON object and re-encodes it with sorted keys.
// Numbers are kept as json.Number so large amounts survive.
func canonicalize(payload interface{}) (map[string]interface{}, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	canonical, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return fields, canonical, nil
}
