package language

import "testing"

func TestToISO2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"spa", "es"},
		{"fra", "fr"},
		{"fre", "fr"},
		{"ger", "de"},
		{"deu", "de"},
		{"chi", "zh"},
		{"dut", "nl"},
		{"pt-BR", "pt"},
		{"english", "en"},
		{"French", "fr"},
		{"", ""},
		{" ", ""},
		{"not a language", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := ToISO2(tt.input); result != tt.expected {
				t.Errorf("ToISO2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToISO3(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "eng"},
		{"fr", "fra"},
		{"de", "deu"},
		{"ger", "deu"},
		{"", "und"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := ToISO3(tt.input); result != tt.expected {
				t.Errorf("ToISO3(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "English"},
		{"eng", "English"},
		{"fre", "French"},
		{"ja", "Japanese"},
		{"nl", "Dutch"},
		{"", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := DisplayName(tt.input); result != tt.expected {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestExtractFromTags(t *testing.T) {
	tests := []struct {
		name     string
		tags     map[string]string
		expected string
	}{
		{"nil tags", nil, ""},
		{"lowercase key", map[string]string{"language": "eng"}, "en"},
		{"uppercase key", map[string]string{"LANGUAGE": "ENG"}, "en"},
		{"null bytes stripped", map[string]string{"language": "ger\x00"}, "de"},
		{"priority", map[string]string{"language": "fr", "LANG": "en"}, "fr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := ExtractFromTags(tt.tags); result != tt.expected {
				t.Errorf("ExtractFromTags(%v) = %q, want %q", tt.tags, result, tt.expected)
			}
		})
	}
}

func TestFromSubtitleName(t *testing.T) {
	tests := []struct {
		path     string
		expected SubtitleInfo
	}{
		{"/m/Heat.en.srt", SubtitleInfo{Language: "en"}},
		{"/m/Heat.en.forced.srt", SubtitleInfo{Language: "en", Forced: true}},
		{"/m/Heat.German.sdh.ass", SubtitleInfo{Language: "de", SDH: true}},
		{"/m/Heat.srt", SubtitleInfo{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if result := FromSubtitleName(tt.path); result != tt.expected {
				t.Errorf("FromSubtitleName(%q) = %+v, want %+v", tt.path, result, tt.expected)
			}
		})
	}
}
