package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"burnledger/cmd/internal/passphrase"
	"burnledger/crypto"
)

func fill(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

type cli struct {
	t      *testing.T
	dir    string
	config string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv(passphrase.DefaultEnvVar, "operator-pass")
	t.Setenv(viewingKeyEnv, "viewing-secret")
	dir := t.TempDir()

	items := filepath.Join(dir, "items.yaml")
	writeFile(t, items, `sword:
  name: Sword
  attributes:
    - trait_type: class
      value: weapon
shield:
  name: Shield
`)
	cfg := fmt.Sprintf(`DataDir = %q
ChainID = "burnledger-test"
LedgerAddress = %q
ItemRegistryFile = %q

[logging]
Level = "error"
`, filepath.Join(dir, "data"), crypto.FormatAddress(fill(0x77)), items)
	path := filepath.Join(dir, "burnctl.toml")
	writeFile(t, path, cfg)
	return &cli{t: t, dir: dir, config: path}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func (c *cli) run(args ...string) (string, string, int) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"--config", c.config}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func (c *cli) mustRun(args ...string) map[string]interface{} {
	c.t.Helper()
	stdout, stderr, code := c.run(args...)
	if code != 0 {
		c.t.Fatalf("burnctl %s exited %d: %s", strings.Join(args, " "), code, stderr)
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		c.t.Fatalf("decode output of %s: %v\n%s", args[0], err, stdout)
	}
	return out
}

func TestBurnctlSettlementFlow(t *testing.T) {
	c := newCLI(t)
	keys := c.mustRun("keys", "new")
	operator, _ := keys["address"].(string)
	if !strings.HasPrefix(operator, "burn1") {
		t.Fatalf("unexpected operator address %q", operator)
	}

	pools := filepath.Join(c.dir, "pools.yaml")
	writeFile(t, pools, fmt.Sprintf(`- name: sscrt
  token: %s
  base_reward: "100"
`, crypto.FormatAddress(fill(0x0a))))
	registry := crypto.FormatAddress(fill(0x02))
	receipt := c.mustRun("init", "--registry", registry, "--pools", pools)
	if receipt["command"] != "instantiate" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	c.mustRun("deposit", "--pool", "sscrt", "--amount", "1000")
	metrics := filepath.Join(c.dir, "metrics.prom")
	out, stderr, code := c.run("--metrics-textfile", metrics, "submit", "--memo", "farewell", "--expect", "sscrt=200", "sword", "shield")
	if code != 0 {
		t.Fatalf("submit failed: %s", stderr)
	}
	if !strings.Contains(out, `"amount": "200"`) {
		t.Fatalf("expected a 200 payout in %s", out)
	}
	if data, err := os.ReadFile(metrics); err != nil || !strings.Contains(string(data), "burnledger_ledger_commands_total") {
		t.Fatalf("metrics textfile missing ledger counters: %v", err)
	}

	info := c.mustRun("info")
	if info["owner"] != operator || info["totalBurned"] != float64(2) {
		t.Fatalf("unexpected info %+v", info)
	}

	c.mustRun("set-viewing-key")
	stdout, stderr, code := c.run("balances")
	if code != 0 || !strings.Contains(stdout, `"balance": "800"`) {
		t.Fatalf("balances exited %d: %s %s", code, stdout, stderr)
	}

	history := c.mustRun("history")
	if history["total"] != float64(2) {
		t.Fatalf("unexpected history %+v", history)
	}

	burns := c.mustRun("burn-history", "--size", "1", "--page", "1")
	records, _ := burns["records"].([]interface{})
	if burns["total"] != float64(2) || len(records) != 1 {
		t.Fatalf("unexpected burn history %+v", burns)
	}

	exportPath := filepath.Join(c.dir, "out", "burns.parquet")
	export := c.mustRun("export", "--out", exportPath)
	if export["rows"] != float64(2) {
		t.Fatalf("unexpected export %+v", export)
	}
	if _, err := os.Stat(exportPath); err != nil {
		t.Fatalf("export file: %v", err)
	}
}

func TestBurnctlRejectsFloorAboveReward(t *testing.T) {
	c := newCLI(t)
	c.mustRun("keys", "new")
	pools := filepath.Join(c.dir, "pools.yaml")
	writeFile(t, pools, fmt.Sprintf(`- name: sscrt
  token: %s
  base_reward: "100"
`, crypto.FormatAddress(fill(0x0a))))
	c.mustRun("init", "--registry", crypto.FormatAddress(fill(0x02)), "--pools", pools)
	c.mustRun("deposit", "--pool", "sscrt", "--amount", "1000")

	_, stderr, code := c.run("submit", "--expect", "sscrt=101", "sword")
	if code == 0 || !strings.Contains(stderr, "actual reward less than expected") {
		t.Fatalf("expected rejection, got %d %s", code, stderr)
	}
	info := c.mustRun("info")
	if info["totalBurned"] != float64(0) {
		t.Fatalf("rejected batch must not burn: %+v", info)
	}
}

func TestBurnctlUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Commands:") {
		t.Fatalf("usage missing: %s", stderr.String())
	}

	c := newCLI(t)
	if _, stderr, code := c.run("frobnicate"); code != 1 || !strings.Contains(stderr, "Unknown command") {
		t.Fatalf("unexpected result %d %s", code, stderr)
	}
	if _, stderr, code := c.run("init"); code != 1 || !strings.Contains(stderr, "Usage: burnctl init") {
		t.Fatalf("unexpected result %d %s", code, stderr)
	}
}
