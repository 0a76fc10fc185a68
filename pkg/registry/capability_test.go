package registry

import (
	"testing"
)

func TestParseCapabilities(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Capability
		wantErr bool
	}{
		{
			name:  "single capability",
			input: "chat",
			want:  CapChat,
		},
		{
			name:  "two capabilities",
			input: "chat,embeddings",
			want:  CapChat | CapEmbeddings,
		},
		{
			name:  "whitespace tolerated",
			input: " tts , translate ",
			want:  CapTTS | CapTranslate,
		},
		{
			name:  "all capabilities",
			input: "chat,embeddings,image,tts,translate,transcribe",
			want:  CapChat | CapEmbeddings | CapImage | CapTTS | CapTranslate | CapTranscribe,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "unknown name",
			input:   "video",
			wantErr: true,
		},
		{
			name:    "one bad entry poisons the list",
			input:   "chat,video",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCapabilities(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCapabilities(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseCapabilities(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestCapabilityRoundTrip verifies parse(format(x)) == x for every non-empty
// subset of the capability bits.
func TestCapabilityRoundTrip(t *testing.T) {
	all := CapChat | CapEmbeddings | CapImage | CapTTS | CapTranslate | CapTranscribe

	for c := Capability(1); c <= all; c++ {
		if c&all != c {
			continue
		}
		parsed, err := ParseCapabilities(c.String())
		if err != nil {
			t.Fatalf("ParseCapabilities(%q) returned error: %v", c.String(), err)
		}
		if parsed != c {
			t.Errorf("round trip of %08b: got %08b via %q", c, parsed, c.String())
		}
	}
}

func TestCapabilityStringOrder(t *testing.T) {
	// Canonical order is chat, embeddings, image, tts, translate, transcribe
	// regardless of bit declaration tricks.
	got := (CapTranscribe | CapChat | CapTTS).String()
	want := "chat,tts,transcribe"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
