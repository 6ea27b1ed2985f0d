package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/atta2022/ixian-core/apigateway"
	"github.com/atta2022/ixian-core/block"
	"github.com/atta2022/ixian-core/cryptoadapter"
	"github.com/atta2022/ixian-core/wallet"
)

const shutdownGrace = 5 * time.Second

// loadOrCreateIdentity opens the node's local keystore, creating a fresh
// signing identity when allowCreate is true and no keystore file exists
// yet.
func loadOrCreateIdentity(path, passphrase string, allowCreate bool, logger *slog.Logger) (pub, priv []byte, err error) {
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if !allowCreate {
			return nil, nil, fmt.Errorf("no keystore at %s (pass -genesis to create one)", path)
		}
		pub, priv, err = cryptoadapter.GenerateKey()
		if err != nil {
			return nil, nil, err
		}
		if err := wallet.CreateKeystore(path, passphrase, pub, priv); err != nil {
			return nil, nil, err
		}
		logger.Info("created new node identity keystore", "path", path)
		return pub, priv, nil
	}
	return wallet.OpenKeystore(path, passphrase)
}

// nodeStatusRequest is the JSON body accepted by the "status" operation.
type nodeStatusRequest struct {
	Op string `json:"op"`
}

// newNodeHandler builds the APIGateway handler exposing the node's signing
// identity and, if one was created, its genesis block summary.
func newNodeHandler(addr, pub []byte, genesisBlock *block.Block, adapter cryptoadapter.Adapter) apigateway.Handler {
	return apigateway.HandlerFunc(func(_ context.Context, _ *string, body []byte) (any, error) {
		req := nodeStatusRequest{Op: "status"}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, fmt.Errorf("malformed request body: %w", err)
			}
		}

		switch req.Op {
		case "", "status":
			resp := map[string]any{
				"primary_address":    hexString(addr),
				"primary_public_key": hexString(pub),
			}
			if genesisBlock != nil {
				resp["genesis_checksum"] = hexString(genesisBlock.BlockChecksum)
				resp["genesis_details"] = genesisBlock.LogDetails()
				resp["genesis_unique_signatures"] = genesisBlock.GetUniqueSignatureCount()
			}
			return resp, nil
		default:
			return nil, fmt.Errorf("unknown op %q", req.Op)
		}
	})
}

func hexString(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0x0f]
	}
	return string(out)
}
