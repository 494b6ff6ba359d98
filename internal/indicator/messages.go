package indicator

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

type locale string

const (
	localeEnglish locale = "en"
	localeKorean  locale = "ko"
)

var localeMatcher = language.NewMatcher([]language.Tag{language.English, language.Korean})

type messages struct {
	active        string
	errorText     string
	transcription string
}

func indicatorMessagesFromEnv() messages {
	raw := os.Getenv("LC_MESSAGES")
	if strings.TrimSpace(raw) == "" {
		raw = os.Getenv("LANG")
	}
	return indicatorMessages(resolveLocale(raw))
}

// resolveLocale maps a POSIX locale such as "ko_KR.UTF-8" onto a supported message set.
func resolveLocale(raw string) locale {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, ".@"); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.ReplaceAll(raw, "_", "-")
	if raw == "" || raw == "C" || raw == "POSIX" {
		return localeEnglish
	}

	tag, err := language.Parse(raw)
	if err != nil {
		return localeEnglish
	}
	_, index, confidence := localeMatcher.Match(tag)
	if confidence == language.No {
		return localeEnglish
	}
	if index == 1 {
		return localeKorean
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeKorean:
		return messages{
			active:        "실시간 자막",
			errorText:     "자막 캡처 오류",
			transcription: "음성 인식 오류",
		}
	case localeEnglish:
		fallthrough
	default:
		return messages{
			active:        "Live subtitles",
			errorText:     "Subtitle capture error",
			transcription: "Speech recognition error",
		}
	}
}
