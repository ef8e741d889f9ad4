package detection

import (
	"image"
	"testing"
)

func TestNewMask_Zeroed(t *testing.T) {
	// Dirty a buffer and hand it back to the pool.
	m := maskWithRects(10, 10, image.Rect(0, 0, 10, 10))
	m.Release()

	m = NewMask(10, 10)
	defer m.Release()
	if m.Count() != 0 {
		t.Errorf("reused mask has %d set pixels, want 0", m.Count())
	}
	if len(m.Pix) != 100 {
		t.Errorf("len(Pix) = %d, want 100", len(m.Pix))
	}
}

func TestMask_Release(t *testing.T) {
	m := NewMask(4, 4)
	m.Release()
	if m.Pix != nil {
		t.Error("Release should drop the buffer")
	}
	m.Release() // second release is a no-op

	var nilMask *Mask
	nilMask.Release()
}

func TestMask_AtSet(t *testing.T) {
	m := NewMask(5, 5)
	defer m.Release()

	m.Set(1, 2, true)
	m.Set(-1, 0, true)
	m.Set(5, 5, true)

	if !m.At(1, 2) {
		t.Error("At(1, 2) should be set")
	}
	if m.At(-1, 0) || m.At(5, 5) {
		t.Error("out-of-range coordinates should read as unset")
	}
	if m.Count() != 1 {
		t.Errorf("count = %d, want 1", m.Count())
	}

	m.Set(1, 2, false)
	if m.At(1, 2) {
		t.Error("At(1, 2) should be cleared")
	}
}

func TestMask_FillRectClips(t *testing.T) {
	m := NewMask(10, 10)
	defer m.Release()

	m.FillRect(image.Rect(-5, 8, 3, 20))
	if m.Count() != 6 {
		t.Errorf("count = %d, want 6", m.Count())
	}
}

func TestMask_Gray(t *testing.T) {
	m := maskWithRects(4, 3, image.Rect(1, 1, 2, 2))
	defer m.Release()

	g := m.Gray()
	if g.Bounds() != image.Rect(0, 0, 4, 3) {
		t.Errorf("bounds = %v", g.Bounds())
	}
	if g.GrayAt(1, 1).Y != 255 || g.GrayAt(0, 0).Y != 0 {
		t.Error("gray values should be 255 for tape and 0 for background")
	}
}
