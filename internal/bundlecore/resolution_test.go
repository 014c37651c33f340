package bundlecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, Included, Classify(RawBundleIncluded))
	assert.Equal(t, NotIncludedThisBlock, Classify(RawBlockPassedWithoutInclusion))
	assert.Equal(t, AccountNonceTooHigh, Classify(RawAccountNonceTooHigh))
	assert.Equal(t, Unknown, Classify(RawResolution(3)))
	assert.Equal(t, Unknown, Classify(RawResolution(-1)))
}

func TestRetryRules(t *testing.T) {
	assert.True(t, IsRetryable(NotIncludedThisBlock))
	for _, o := range []ResolutionOutcome{Included, AccountNonceTooHigh, Unknown} {
		assert.False(t, IsRetryable(o), o.String())
	}

	assert.True(t, ShouldRetry(NotIncludedThisBlock, 1, 2))
	assert.False(t, ShouldRetry(NotIncludedThisBlock, 2, 2))
	assert.False(t, ShouldRetry(NotIncludedThisBlock, 1, 1))
	assert.False(t, ShouldRetry(AccountNonceTooHigh, 1, 5))
}

func TestWantsStats(t *testing.T) {
	assert.True(t, wantsStats(NotIncludedThisBlock))
	assert.False(t, wantsStats(Included))
	assert.False(t, wantsStats(AccountNonceTooHigh))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "Included", Included.String())
	assert.Equal(t, "NotIncludedThisBlock", NotIncludedThisBlock.String())
	assert.Equal(t, "AccountNonceTooHigh", AccountNonceTooHigh.String())
	assert.Equal(t, "Unknown", ResolutionOutcome(42).String())
}
