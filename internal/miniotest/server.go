// Package miniotest runs throwaway MinIO servers for integration tests.
package miniotest

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/snapp-incubator/minio-bucket-operator/internal/credentials"
	"github.com/snapp-incubator/minio-bucket-operator/internal/mcclient"
	"github.com/snapp-incubator/minio-bucket-operator/internal/minioadmin"
)

const (
	readyTimeout  = 10 * time.Second
	readyInterval = 100 * time.Millisecond
)

type Server struct {
	RootUser     string
	RootPassword string
	Port         int

	cmd *exec.Cmd
}

// RequireBinaries skips the test unless every binary is on PATH.
func RequireBinaries(t testing.TB, binaries ...string) {
	t.Helper()
	for _, b := range binaries {
		if _, err := exec.LookPath(b); err != nil {
			t.Skipf("%s not found on PATH", b)
		}
	}
}

// Start runs a MinIO server with random root credentials on a free port and
// waits until it is live. The server is killed when the test ends.
func Start(t testing.TB) *Server {
	t.Helper()
	RequireBinaries(t, "minio")

	user, err := credentials.RandomString(30)
	if err != nil {
		t.Fatal(err)
	}
	password, err := credentials.RandomString(30)
	if err != nil {
		t.Fatal(err)
	}
	port, err := freePort()
	if err != nil {
		t.Fatal(err)
	}

	storageDir := t.TempDir()
	cmd := exec.Command("minio", "server", "--address", ":"+strconv.Itoa(port), storageDir)
	cmd.Dir = storageDir
	cmd.Env = append(cmd.Environ(), "MINIO_ROOT_USER="+user, "MINIO_ROOT_PASSWORD="+password)
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start minio, %v", err)
	}

	s := &Server{RootUser: user, RootPassword: password, Port: port, cmd: cmd}
	t.Cleanup(s.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()
	for !minioadmin.IsReady(ctx, s.Endpoint()) {
		select {
		case <-ctx.Done():
			t.Fatalf("minio did not become ready within %s", readyTimeout)
		case <-time.After(readyInterval):
		}
	}

	return s
}

func (s *Server) Endpoint() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.Port)
}

func (s *Server) Target() mcclient.Target {
	return mcclient.Target{Endpoint: s.Endpoint(), AccessKey: s.RootUser, SecretKey: s.RootPassword}
}

// Service returns a Service talking to the server through the mc binary.
func (s *Server) Service(tempDir string) *minioadmin.Service {
	client := mcclient.New(s.Target(), mcclient.Options{TempDir: tempDir, Timeout: time.Minute})
	return minioadmin.NewService(client, minioadmin.Options{TempDir: tempDir})
}

func (s *Server) Stop() {
	if s.cmd.Process == nil || s.cmd.ProcessState != nil {
		return
	}
	_ = s.cmd.Process.Kill()
	_ = s.cmd.Wait()
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
