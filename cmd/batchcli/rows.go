package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	core "github.com/ligun0805/bundle-submit/internal/bundlecore"
	"github.com/ligun0805/bundle-submit/internal/config"
)

// intentRow is one parsed input line. Rows that fail to parse keep err and
// are reported in the output instead of being submitted.
type intentRow struct {
	line   int
	tx     core.UnsignedTransaction
	signer core.SigningIdentity
	err    error
}

type rowResult struct {
	line   int
	from   common.Address
	result core.Result
	err    error
}

func (r rowResult) record() []string {
	hash := ""
	if n := len(r.result.Attempts); n > 0 {
		hash = r.result.Attempts[n-1].BundleHash.Hex()
	}
	errText := ""
	if r.err != nil {
		errText = r.err.Error()
	}
	return []string{
		strconv.Itoa(r.line),
		r.from.Hex(),
		r.result.IntentID,
		r.result.Outcome.String(),
		strconv.Itoa(len(r.result.Attempts)),
		hash,
		errText,
	}
}

// parseRows reads to,valueWei,dataHex,gasLimit[,walletKey]. Empty gasLimit
// falls back to GAS_LIMIT and an empty walletKey to WALLET_PRIVATE_KEY.
func parseRows(data []byte, st config.Settings) ([]intentRow, error) {
	var defaultSigner core.SigningIdentity
	if strings.TrimSpace(st.WalletPrivateKey) != "" {
		id, _, err := core.IdentityFromHex(st.WalletPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("WALLET_PRIVATE_KEY: %w", err)
		}
		defaultSigner = id
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comma = detectDelimiter(data)
	reader.Comment = '#'

	var rows []intentRow
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if skipRow(rec, line) {
			continue
		}
		row := intentRow{line: line, signer: defaultSigner}
		row.tx, row.signer, row.err = parseRow(rec, defaultSigner, st.GasLimit)
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(rec []string, defaultSigner core.SigningIdentity, defaultGas uint64) (core.UnsignedTransaction, core.SigningIdentity, error) {
	var tx core.UnsignedTransaction
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	if len(rec) < 1 || rec[0] == "" {
		return tx, defaultSigner, errors.New("missing to address")
	}
	if !common.IsHexAddress(rec[0]) {
		return tx, defaultSigner, fmt.Errorf("invalid to address %q", rec[0])
	}
	to := common.HexToAddress(rec[0])
	tx.To = &to

	tx.Value = new(big.Int)
	if len(rec) > 1 && rec[1] != "" {
		if _, ok := tx.Value.SetString(rec[1], 10); !ok || tx.Value.Sign() < 0 {
			return tx, defaultSigner, fmt.Errorf("invalid valueWei %q", rec[1])
		}
	}
	if len(rec) > 2 && rec[2] != "" && rec[2] != "0x" {
		b, err := hexutil.Decode(rec[2])
		if err != nil {
			return tx, defaultSigner, fmt.Errorf("invalid dataHex: %w", err)
		}
		tx.Data = b
	}
	tx.GasLimit = defaultGas
	if len(rec) > 3 && rec[3] != "" {
		g, err := strconv.ParseUint(rec[3], 10, 64)
		if err != nil {
			return tx, defaultSigner, fmt.Errorf("invalid gasLimit %q", rec[3])
		}
		tx.GasLimit = g
	}

	signer := defaultSigner
	if len(rec) > 4 && rec[4] != "" {
		id, _, err := core.IdentityFromHex(rec[4])
		if err != nil {
			return tx, defaultSigner, fmt.Errorf("invalid walletKey: %w", err)
		}
		signer = id
	}
	if signer == nil {
		return tx, nil, errors.New("no walletKey and no WALLET_PRIVATE_KEY")
	}
	return tx, signer, nil
}

// groupBySigner returns row indexes bucketed per signer, in first-seen
// order. Rows without a signer get a bucket each.
func groupBySigner(rows []intentRow) [][]int {
	var groups [][]int
	index := make(map[common.Address]int)
	for i, r := range rows {
		if r.signer == nil || r.err != nil {
			groups = append(groups, []int{i})
			continue
		}
		addr := r.signer.Address()
		g, ok := index[addr]
		if !ok {
			g = len(groups)
			index[addr] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func detectDelimiter(data []byte) rune {
	for _, l := range strings.Split(string(data), "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		if strings.Contains(l, ";") && !strings.Contains(l, ",") {
			return ';'
		}
		break
	}
	return ','
}

func skipRow(row []string, lineNo int) bool {
	if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
		return true
	}
	if lineNo == 1 {
		head := strings.ToLower(strings.Join(row, ","))
		if strings.Contains(head, "to") && strings.Contains(head, "value") {
			return true
		}
	}
	return false
}
