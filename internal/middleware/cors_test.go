package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorsOrigin(t *testing.T) {
	allowed := []string{"http://localhost:3000", "https://app.example.com"}

	assert.Equal(t, "http://localhost:3000", corsOrigin("http://localhost:3000", allowed))
	assert.Equal(t, "HTTPS://APP.EXAMPLE.COM", corsOrigin("HTTPS://APP.EXAMPLE.COM", allowed))
	assert.Empty(t, corsOrigin("https://evil.example.com", allowed))

	// Wildcard entry echoes whatever origin asked
	assert.Equal(t, "https://anywhere.test", corsOrigin("https://anywhere.test", []string{"*"}))

	// No configured origins allows everything
	assert.Equal(t, "https://anywhere.test", corsOrigin("https://anywhere.test", nil))
	assert.Equal(t, "*", corsOrigin("", nil))
}
