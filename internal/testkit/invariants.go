package testkit

import "fmt"

// CheckExactlyOnceDisposal verifies that every module and every context the
// backend ever handed out was disposed exactly once.
func CheckExactlyOnceDisposal(b *CountingBackend) error {
	if b == nil {
		return fmt.Errorf("nil backend")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ref, rec := range b.modules {
		if rec.disposals != 1 {
			return fmt.Errorf("module %d (%s) disposed %d times", ref, rec.name, rec.disposals)
		}
	}
	for ref, rec := range b.contexts {
		if rec.disposals != 1 {
			return fmt.Errorf("context %d disposed %d times", ref, rec.disposals)
		}
	}
	return nil
}
