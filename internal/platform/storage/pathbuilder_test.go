package storage

import "testing"

func TestInvoiceKeyIsDeterministic(t *testing.T) {
	key, err := InvoiceKey("ord_01HZX")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "invoices/Invoice_ord_01HZX.pdf"
	if key != expected {
		t.Fatalf("expected %s, got %s", expected, key)
	}
	again, _ := InvoiceKey("ord_01HZX")
	if again != key {
		t.Fatalf("expected stable key, got %s and %s", key, again)
	}
}

func TestBuildInvoicePathHonoursFileName(t *testing.T) {
	path, err := BuildObjectPath(PurposeInvoice, PathParams{OrderID: "ord_1", FileName: "copy.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "invoices/copy.pdf" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	for _, id := range []string{"", "../bad", "a/b"} {
		if _, err := InvoiceKey(id); err == nil {
			t.Fatalf("expected error for order id %q", id)
		}
	}
	if _, err := BuildObjectPath(AssetPurpose("unknown"), PathParams{OrderID: "x"}); err == nil {
		t.Fatalf("expected error for unknown purpose")
	}
}
