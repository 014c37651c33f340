package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/bundle-submit/internal/config"
)

func printConfig(cfg config.Settings, chainID *big.Int, authAddr, walletAddr common.Address) {
	fmt.Println("=== CONFIG (.env) ===")
	fmt.Println("RPC_URL            :", cfg.RPCURL)
	fmt.Println("CHAIN_ID           :", chainID.String())
	fmt.Println("RELAY_URL          :", cfg.RelayURL)
	fmt.Println("FLASHBOTS_AUTH_KEY :", maskHex(cfg.FlashbotsAuthKey))
	fmt.Println("  -> auth address  :", authAddr.Hex())
	fmt.Println("WALLET_PRIVATE_KEY :", maskHex(cfg.WalletPrivateKey))
	fmt.Println("  -> wallet        :", walletAddr.Hex())
	fmt.Println("Blocks ahead       :", cfg.BlocksInFuture)
	fmt.Println("Max attempts       :", cfg.MaxAttempts)
	fmt.Println("Tx type            :", cfg.TxType)
	if cfg.TxType == "legacy" {
		fmt.Println("Gas price (gwei)   :", cfg.LegacyGasGwei)
	} else {
		fmt.Println("Tip (gwei)         :", cfg.PriorityFeeGwei, "| mode:", cfg.TipMode)
	}
	fmt.Println("Resimulate on retry:", cfg.ResimulateOnRetry)
	fmt.Println("Replacement UUID   :", cfg.UseReplacement)
	fmt.Println("=====================")
}
