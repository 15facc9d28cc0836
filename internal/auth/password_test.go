package auth

import "testing"

func TestHashAndComparePassword(t *testing.T) {
	hash, err := HashPassword("Pass123!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "Pass123!" {
		t.Fatal("password stored in the clear")
	}
	if err := ComparePassword(hash, "Pass123!"); err != nil {
		t.Fatalf("ComparePassword: %v", err)
	}
	if err := ComparePassword(hash, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
}

func TestHashPasswordSalted(t *testing.T) {
	first, err := HashPassword("Pass123!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	second, err := HashPassword("Pass123!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if first == second {
		t.Fatal("identical hashes for the same password, salting broken")
	}
}
