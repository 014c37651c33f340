package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFriendlySimErr(t *testing.T) {
	assert.Equal(t, "simulation not supported by relay", friendlySimErr("the method eth_callBundle does not exist/is not available: method not found"))
	assert.Contains(t, friendlySimErr("insufficient funds for gas * price + value"), "insufficient ETH")
	assert.Contains(t, friendlySimErr("nonce too low: address 0x1, tx: 3 state: 4"), "nonce already used")
	assert.Equal(t, "something new", friendlySimErr("something new"))
}

func TestMaskHex(t *testing.T) {
	assert.Equal(t, "(ephemeral)", maskHex(" "))
	assert.Equal(t, "***", maskHex("0x1234"))
	assert.Equal(t, "0x4c08…2318", maskHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"))
}
