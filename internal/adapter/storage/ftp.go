package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
)

const ftpDialTimeout = 10 * time.Second

// FTPStore uploads images to an FTP server, one connection per call.
type FTPStore struct {
	addr     string
	user     string
	password string
}

// NewFTPStore returns a store for the server at addr ("host:port").
func NewFTPStore(addr, user, password string) *FTPStore {
	return &FTPStore{addr: addr, user: user, password: password}
}

func (s *FTPStore) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.addr, ftp.DialWithTimeout(ftpDialTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connect to ftp: %w", err)
	}
	if err := conn.Login(s.user, s.password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("login to ftp: %w", err)
	}
	return conn, nil
}

// Store uploads r as UploadDangerReportImages/<name>.
func (s *FTPStore) Store(ctx context.Context, name string, r io.Reader) error {
	if err := checkName(name); err != nil {
		return err
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	// The directory usually exists already.
	_ = conn.MakeDir(ImageDir)
	if err := conn.Stor(path.Join(ImageDir, name), r); err != nil {
		return fmt.Errorf("upload image %s: %w", name, err)
	}
	return nil
}

// Delete removes UploadDangerReportImages/<name>.
func (s *FTPStore) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	if err := conn.Delete(path.Join(ImageDir, name)); err != nil {
		return fmt.Errorf("delete image %s: %w", name, err)
	}
	return nil
}
