package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Emmet-Finance/Bridge-Data/internal/security"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Admin requests carry three headers. The signature covers
// security.RequestDigest(method, escaped path, expiry, body).
const (
	SignatureHeader = "X-Signature"
	SignerHeader    = "X-Signer"
	ExpiryHeader    = "X-Signature-Expiry"
)

// maxTrackedSignatures bounds the replay cache. Entries are never evicted
// for size: once full, new signed requests are refused until entries expire.
const maxTrackedSignatures = 100000

// replayGuard remembers accepted request envelopes until their expiry window closes
type replayGuard struct {
	mu   sync.Mutex
	seen *expirable.LRU[common.Hash, struct{}]
}

func newReplayGuard(window time.Duration) *replayGuard {
	return &replayGuard{seen: expirable.NewLRU[common.Hash, struct{}](maxTrackedSignatures, nil, window)}
}

// claim records key, failing if it was already used
func (g *replayGuard) claim(key common.Hash) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen.Contains(key) {
		return fmt.Errorf("%w: request already used", errUnauthenticated)
	}
	if g.seen.Len() >= maxTrackedSignatures {
		return fmt.Errorf("%w: too many signed requests in flight", errBusy)
	}
	g.seen.Add(key, struct{}{})
	return nil
}

// readSigned reads the body and authenticates the caller from the signature headers.
// The signature must come from the claimed signer, bind this method and path,
// expire within the configured window and not have been used before.
func (s *Server) readSigned(r *http.Request) ([]byte, common.Address, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, common.Address{}, badRequest("failed to read body: %v", err)
	}

	sig := r.Header.Get(SignatureHeader)
	claimed := r.Header.Get(SignerHeader)
	rawExpiry := r.Header.Get(ExpiryHeader)
	if sig == "" || claimed == "" || rawExpiry == "" {
		return nil, common.Address{}, fmt.Errorf("%w: %s, %s and %s headers are required",
			errUnauthenticated, SignatureHeader, SignerHeader, ExpiryHeader)
	}
	if !common.IsHexAddress(claimed) {
		return nil, common.Address{}, fmt.Errorf("%w: invalid %s", errUnauthenticated, SignerHeader)
	}
	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("%w: invalid %s", errUnauthenticated, ExpiryHeader)
	}
	now := time.Now()
	if expiry <= now.Unix() {
		return nil, common.Address{}, fmt.Errorf("%w: signature expired", errUnauthenticated)
	}
	if expiry > now.Add(s.opts.MaxSignatureAge).Unix() {
		return nil, common.Address{}, fmt.Errorf("%w: expiry more than %s ahead", errUnauthenticated, s.opts.MaxSignatureAge)
	}

	digest := security.RequestDigest(r.Method, r.URL.EscapedPath(), expiry, body)
	caller, err := security.RecoverRequestSigner(r.Method, r.URL.EscapedPath(), expiry, body, sig)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	if caller != common.HexToAddress(claimed) {
		return nil, common.Address{}, fmt.Errorf("%w: signature does not match %s", errUnauthenticated, SignerHeader)
	}
	if err := s.replays.claim(crypto.Keccak256Hash(digest, caller.Bytes())); err != nil {
		return nil, common.Address{}, err
	}
	return body, caller, nil
}

// decodeSigned authenticates the request and decodes its JSON body into v.
// Write routes always carry a body; an empty one is rejected.
func (s *Server) decodeSigned(r *http.Request, v interface{}) (common.Address, error) {
	body, caller, err := s.readSigned(r)
	if err != nil {
		return common.Address{}, err
	}
	if len(body) == 0 {
		return common.Address{}, badRequest("empty request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return common.Address{}, badRequest("invalid request body: %v", err)
	}
	return caller, nil
}
