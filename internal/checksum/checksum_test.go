package checksum

import "testing"

func TestSum(t *testing.T) {
	// SHA-256 of the empty string.
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %s", got)
	}
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Error("different input, same sum")
	}
}

func TestSumJSON(t *testing.T) {
	a, err := SumJSON([]int{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if a != Sum([]byte("[1,2]")) {
		t.Errorf("SumJSON = %s", a)
	}
	if _, err := SumJSON(make(chan int)); err == nil {
		t.Error("expected error for unencodable value")
	}
}
