// Package etcdtest runs an `etcd` server for the tests of a package, such
// as those of the etcd block store. Tests are skipped if no `etcd` binary
// is on the PATH.
package etcdtest

import (
	"context"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// TestMainWithEtcd runs the tests of a package with an etcd server,
// if one is available. Call it as:
//
//	func TestMain(m *testing.M) { etcdtest.TestMainWithEtcd(m) }
func TestMainWithEtcd(m *testing.M) {
	var bin, err = exec.LookPath("etcd")
	if err != nil {
		log.Println("etcd binary not found: tests using etcdtest.TestClient will skip")
		os.Exit(m.Run())
	}

	var srv = &server{}
	if err = srv.start(bin); err != nil {
		log.Fatal(err)
	}
	var code = m.Run()
	srv.stop()
	os.Exit(code)
}

// TestClient returns a client of the test server, or skips the test if
// there is none. The keyspace must be empty, and is emptied again when
// the test completes.
func TestClient(t testing.TB) *clientv3.Client {
	if client == nil {
		t.Skip("etcd binary not available")
	}
	var resp, err = client.Get(context.Background(), "", clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		t.Fatal(err)
	} else if resp.Count != 0 {
		t.Fatalf("etcd holds %d keys of a prior test", resp.Count)
	}

	t.Cleanup(func() {
		if _, err := client.Delete(context.Background(), "", clientv3.WithPrefix()); err != nil {
			t.Error(err)
		}
	})
	return client
}

type server struct {
	cmd *exec.Cmd
	dir string
}

var client *clientv3.Client

func (s *server) start(bin string) (err error) {
	if s.dir, err = os.MkdirTemp("", "etcdtest"); err != nil {
		return err
	}

	s.cmd = exec.Command(bin,
		"--listen-peer-urls", "unix://peer.sock:0",
		"--listen-client-urls", "unix://client.sock:0",
		"--advertise-client-urls", "unix://client.sock:0",
	)
	s.cmd.Dir = s.dir
	s.cmd.Env = append(os.Environ(), "ETCD_LOG_LEVEL=error", "ETCD_LOGGER=zap")
	s.cmd.Stdout, s.cmd.Stderr = os.Stdout, os.Stderr
	s.cmd.SysProcAttr = sysProcAttr()

	if err = s.cmd.Start(); err != nil {
		return err
	}

	client, err = clientv3.New(clientv3.Config{
		Endpoints:   []string{"unix://" + filepath.Join(s.dir, "client.sock:0")},
		DialTimeout: 5 * time.Second,
	})
	return err
}

func (s *server) stop() {
	if client != nil {
		_ = client.Close()
	}
	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Printf("failed to signal etcd: %s", err)
	}
	_ = s.cmd.Wait()
	_ = os.RemoveAll(s.dir)
}
