// Package imap is the transport layer: a thin session over the go-imap
// client exposing the batched operations the browser core needs.
package imap

import (
	"crypto/tls"
	"fmt"

	"imapsh/internal/config"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
)

// Client is the subset of the go-imap client this tool drives, kept as an
// interface so tests can substitute a mock connection.
type Client interface {
	Login(username, password string) error
	Logout() error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Create(name string) error
	Rename(existingName, newName string) error
	Delete(name string) error
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Lsub(ref, name string, ch chan *imap.MailboxInfo) error
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	UidCopy(seqset *imap.SeqSet, dest string) error
	Expunge(ch chan uint32) error
}

// Connect dials the configured server, negotiates TLS or STARTTLS, and logs
// in.
func Connect(cfg config.Config) (Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.IMAP.Host, cfg.IMAP.Port)
	var c *imapclient.Client
	var err error

	if cfg.IMAP.TLS {
		tlsConfig := &tls.Config{
			ServerName:         cfg.IMAP.Host,
			InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
		}
		c, err = imapclient.DialTLS(addr, tlsConfig)
	} else {
		c, err = imapclient.Dial(addr)
		if err == nil && cfg.IMAP.StartTLS {
			tlsConfig := &tls.Config{
				ServerName:         cfg.IMAP.Host,
				InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
			}
			if err := c.StartTLS(tlsConfig); err != nil {
				_ = c.Logout()
				return nil, err
			}
		}
	}
	if err != nil {
		return nil, err
	}

	if err := c.Login(cfg.Auth.Username, cfg.Auth.Password); err != nil {
		_ = c.Logout()
		return nil, err
	}

	return c, nil
}
