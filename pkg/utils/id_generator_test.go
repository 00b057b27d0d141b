package utils

import (
	"strings"
	"sync"
	"testing"
)

func TestCodeGeneratorPrefixes(t *testing.T) {
	g := NewCodeGenerator()

	entry := g.EntryCode()
	if !strings.HasPrefix(entry, "ESC-") || !ValidateCode(entry, "esc") {
		t.Errorf("entry code %q failed validation", entry)
	}

	payout := g.PayoutCode()
	if !strings.HasPrefix(payout, "PAY-") || !ValidateCode(payout, "pay") {
		t.Errorf("payout code %q failed validation", payout)
	}

	if ValidateCode(entry, "pay") {
		t.Errorf("entry code %q validated against the wrong prefix", entry)
	}
}

func TestCodeGeneratorUniqueUnderConcurrency(t *testing.T) {
	g := NewCodeGenerator()

	const perWorker = 200
	const workers = 10

	var mu sync.Mutex
	seen := make(map[string]bool, perWorker*workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				code := g.EntryCode()
				mu.Lock()
				if seen[code] {
					t.Errorf("duplicate code %q", code)
				}
				seen[code] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestValidateCodeRejectsMalformed(t *testing.T) {
	for _, code := range []string{
		"",
		"ESC",
		"ESC-",
		"ESC-notaulid",
		"ESC-01ARZ3NDEKTSV4RRFFQ69G5FA",   // 25 chars
		"esc-01ARZ3NDEKTSV4RRFFQ69G5FAV",  // lowercase prefix
		"PAY_01ARZ3NDEKTSV4RRFFQ69G5FAV",  // wrong separator
	} {
		if ValidateCode(code, "esc") {
			t.Errorf("ValidateCode(%q) = true, want false", code)
		}
	}
}
