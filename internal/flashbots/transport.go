package flashbots

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces the X-Flashbots-Signature for request bodies. It is the
// relay reputation identity, unrelated to the keys that sign transactions.
type Signer interface {
	Address() common.Address
	SignHash(hash []byte) ([]byte, error)
}

// signingTransport adds the relay auth header to every JSON-RPC POST.
type signingTransport struct {
	base   http.RoundTripper
	signer Signer
}

func (t *signingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body == nil {
		return t.base.RoundTrip(req)
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	header, err := SignatureHeader(t.signer, body)
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	r.Header.Set("X-Flashbots-Signature", header)
	return t.base.RoundTrip(r)
}

// SignatureHeader returns "address:signature" where signature is a personal
// sign over the hex keccak256 of body.
func SignatureHeader(signer Signer, body []byte) (string, error) {
	digest := crypto.Keccak256Hash(body).Hex()
	sig, err := signer.SignHash(accounts.TextHash([]byte(digest)))
	if err != nil {
		return "", fmt.Errorf("sign relay request: %w", err)
	}
	return signer.Address().Hex() + ":" + hexutil.Encode(sig), nil
}
