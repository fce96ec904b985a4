package paipu

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "single link",
			text:     "gg https://mahjongsoul.game.yo-star.com/?paipu=abc-123 wp",
			expected: []string{"https://mahjongsoul.game.yo-star.com/?paipu=abc-123"},
		},
		{
			name: "duplicates kept in order",
			text: "https://mahjongsoul.game.yo-star.com/?paipu=a_1\nhttps://mahjongsoul.game.yo-star.com/?paipu=b2 https://mahjongsoul.game.yo-star.com/?paipu=a_1",
			expected: []string{
				"https://mahjongsoul.game.yo-star.com/?paipu=a_1",
				"https://mahjongsoul.game.yo-star.com/?paipu=b2",
				"https://mahjongsoul.game.yo-star.com/?paipu=a_1",
			},
		},
		{
			name:     "trailing punctuation is not part of the token",
			text:     "(https://mahjongsoul.game.yo-star.com/?paipu=xyz_9).",
			expected: []string{"https://mahjongsoul.game.yo-star.com/?paipu=xyz_9"},
		},
		{
			name:     "other hosts ignored",
			text:     "https://game.mahjongsoul.com/?paipu=abc http://mahjongsoul.game.yo-star.com/?paipu=abc",
			expected: nil,
		},
		{
			name:     "empty token ignored",
			text:     "https://mahjongsoul.game.yo-star.com/?paipu=",
			expected: nil,
		},
		{
			name:     "no content",
			text:     "",
			expected: nil,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			got := Extract(test.text)
			if diff := cmp.Diff(test.expected, got); diff != "" {
				t.Errorf("Extract mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestID(t *testing.T) {
	assert.Equal(t, "abc-123", ID("https://mahjongsoul.game.yo-star.com/?paipu=abc-123"))
	assert.Equal(t, "last", ID("https://example.com/?a=first&b=last"))
	assert.Equal(t, "no-equals", ID("no-equals"))
	assert.Equal(t, "", ID("https://example.com/?paipu="))
}

func TestNewTask(t *testing.T) {
	task := NewTask("https://mahjongsoul.game.yo-star.com/?paipu=abc-123", "downloads")

	assert.Equal(t, "https://mahjongsoul.game.yo-star.com/?paipu=abc-123", task.URL)
	assert.Equal(t, "abc-123", task.ID)
	assert.Equal(t, filepath.Join("downloads", "abc-123.json"), task.Path)
}
