package api

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Headers carrying the caller identity on every mutating request. The
// signature must recover to the address in CallerHeader.
const (
	CallerHeader    = "X-Caller-Address"
	TimestampHeader = "X-Caller-Timestamp" // unix seconds
	SignatureHeader = "X-Caller-Signature" // 65-byte [R || S || V], hex
)

// DefaultSignatureWindow bounds the clock skew accepted between the
// signed timestamp and the server clock.
const DefaultSignatureWindow = 30 * time.Second

// maxSignedBody caps how much of a request body is read for verification.
const maxSignedBody = 1 << 20

var (
	errBadTimestamp = errors.New("timestamp header must be unix seconds")
	errStale        = errors.New("request timestamp outside the accepted window")
	errBadSignature = errors.New("signature header must be 65 hex-encoded bytes")
	errWrongSigner  = errors.New("signature does not match caller address")
)

// RequestDigest returns the hash a caller signs for one request: the
// personal-message hash of method, path, timestamp and the keccak256 of
// the raw body, newline separated.
func RequestDigest(method, path string, timestamp int64, body []byte) []byte {
	msg := fmt.Sprintf("%s\n%s\n%d\n%s", method, path, timestamp, hexutil.Encode(ethcrypto.Keccak256(body)))
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return ethcrypto.Keccak256([]byte(prefix), []byte(msg))
}

// SignRequest signs a request with key and returns the SignatureHeader
// value. V is shifted to 27/28 for wallet compatibility.
func SignRequest(key *ecdsa.PrivateKey, method, path string, timestamp int64, body []byte) (string, error) {
	sig, err := ethcrypto.Sign(RequestDigest(method, path, timestamp, body), key)
	if err != nil {
		return "", fmt.Errorf("api: sign request: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// SetAuthHeaders signs the request and sets all three caller headers.
func SetAuthHeaders(req *http.Request, key *ecdsa.PrivateKey, timestamp int64, body []byte) error {
	sig, err := SignRequest(key, req.Method, req.URL.Path, timestamp, body)
	if err != nil {
		return err
	}
	req.Header.Set(CallerHeader, ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
	req.Header.Set(TimestampHeader, strconv.FormatInt(timestamp, 10))
	req.Header.Set(SignatureHeader, sig)
	return nil
}

// verifyCaller recovers the signer of r and checks it against the claimed
// address. The body is buffered and put back for the handler to decode.
func (h *Handler) verifyCaller(r *http.Request, claimed common.Address) error {
	ts, err := strconv.ParseInt(r.Header.Get(TimestampHeader), 10, 64)
	if err != nil {
		return errBadTimestamp
	}
	skew := h.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > h.window {
		return errStale
	}

	sig, err := hexutil.Decode(r.Header.Get(SignatureHeader))
	if err != nil || len(sig) != 65 {
		return errBadSignature
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	pub, err := ethcrypto.SigToPub(RequestDigest(r.Method, r.URL.Path, ts, body), sig)
	if err != nil {
		return errWrongSigner
	}
	if ethcrypto.PubkeyToAddress(*pub) != claimed {
		return errWrongSigner
	}
	return nil
}
