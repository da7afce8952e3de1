package tokens

import (
	"testing"

	"agentloop/internal/domain/entity"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 0, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcdefgh"))
}

func TestCounter_FallsBackWithoutEncoder(t *testing.T) {
	var nilCounter *Counter
	assert.Equal(t, 3, nilCounter.CountTokens("twelve chars"))
	assert.Equal(t, 3, NewEstimator().CountTokens("twelve chars"))
}

func TestCountTranscript(t *testing.T) {
	c := NewEstimator()

	turns := []entity.Turn{
		entity.NewUserTurn("abcdefgh"),
		entity.NewAssistantTurn([]entity.ContentBlock{entity.NewTextBlock("abcd")}),
	}

	// "user"=1, "abcdefgh"=2, "assistant"=2, "abcd"=1, plus 3 per turn and 3 overall.
	assert.Equal(t, 1+2+3+2+1+3+3, c.CountTranscript("", turns))

	// system adds "system"=1, "abcdefgh"=2 and 3 overhead.
	assert.Equal(t, 1+2+3+2+1+3+3+1+2+3, c.CountTranscript("abcdefgh", turns))
}
