package pcsc

import (
	"errors"
	"testing"
)

func TestSelectReader(t *testing.T) {
	readers := []string{"ACS ACR122U PICC Interface 00 00", "Yubico YubiKey OTP+FIDO+CCID 01 00"}

	tests := []struct {
		name    string
		readers []string
		filter  string
		want    string
		wantErr bool
	}{
		{name: "Empty filter picks first", readers: readers, want: readers[0]},
		{name: "Substring", readers: readers, filter: "yubikey", want: readers[1]},
		{name: "No match", readers: readers, filter: "Gemalto", wantErr: true},
		{name: "No readers", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectReader(tt.readers, tt.filter)
			if tt.wantErr {
				if !errors.Is(err, ErrNoReader) {
					t.Errorf("SelectReader() error = %v, want ErrNoReader", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("SelectReader() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}
