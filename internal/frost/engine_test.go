package frost

import "testing"

func TestNewEngineDispatchesByCurve(t *testing.T) {
	secpEngine, err := NewEngine(CurveSecp256k1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secpEngine.Curve() != CurveSecp256k1 {
		t.Fatalf("expected secp256k1 engine, got %s", secpEngine.Curve())
	}

	edEngine, err := NewEngine(CurveEd25519)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edEngine.Curve() != CurveEd25519 {
		t.Fatalf("expected ed25519 engine, got %s", edEngine.Curve())
	}
}

func TestNewEngineRejectsUnknownCurve(t *testing.T) {
	if _, err := NewEngine(Curve("bn254")); err == nil {
		t.Fatal("expected an error for an unsupported curve")
	}
}

func TestAddRound1PackageRejectsOwnIndex(t *testing.T) {
	e, err := NewEngine(CurveSecp256k1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.InitDKG(1, 3, 2); err != nil {
		t.Fatalf("InitDKG failed: %v", err)
	}
	if err := e.AddRound1Package(1, Round1Package("deadbeef")); err == nil {
		t.Fatal("expected an error when a party tries to add its own round-1 package")
	}
}

func TestCanStartRound2FalseBeforeAllPackagesReceived(t *testing.T) {
	e, err := NewEngine(CurveSecp256k1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.InitDKG(1, 3, 2); err != nil {
		t.Fatalf("InitDKG failed: %v", err)
	}
	if e.CanStartRound2() {
		t.Fatal("expected round 2 to be gated until every peer's round-1 package has arrived")
	}
}

func TestSolanaAddressUnsupportedOnSecp256k1(t *testing.T) {
	e, err := NewEngine(CurveSecp256k1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.SolanaAddress(); err == nil {
		t.Fatal("expected secp256k1 engine to reject solana address derivation")
	}
}

func TestEthereumAddressUnsupportedOnEd25519(t *testing.T) {
	e, err := NewEngine(CurveEd25519)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.EthereumAddress(); err == nil {
		t.Fatal("expected ed25519 engine to reject ethereum address derivation")
	}
}
