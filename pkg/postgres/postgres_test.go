package postgres

import "testing"

func TestConfigDSN(t *testing.T) {
	cfg := &Config{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "allosh", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=allosh sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
}
