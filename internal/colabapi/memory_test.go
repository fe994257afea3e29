package colabapi

import "testing"

func TestFormatMemoryBoundaries(t *testing.T) {
	cases := []struct {
		mb   int64
		want string
	}{
		{0, "0 MB"},
		{1023, "1023 MB"},
		{1024, "1.0 GB"},
		{2560, "2.5 GB"},
	}
	for _, c := range cases {
		if got := FormatMemory(c.mb); got != c.want {
			t.Errorf("FormatMemory(%d) = %q, want %q", c.mb, got, c.want)
		}
	}
}

func TestCalculateMemoryUsage(t *testing.T) {
	cases := []struct {
		used, total int64
		want        int
	}{
		{0, 0, 0},
		{512, 0, 0},
		{512, 1024, 50},
		{1024, 1024, 100},
		{333, 1000, 33},
	}
	for _, c := range cases {
		if got := CalculateMemoryUsage(c.used, c.total); got != c.want {
			t.Errorf("CalculateMemoryUsage(%d, %d) = %d, want %d", c.used, c.total, got, c.want)
		}
	}
}
