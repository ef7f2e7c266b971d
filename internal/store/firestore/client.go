// Package firestore implements the store interfaces on Cloud Firestore.
// Every document carries the owning user's id; a Store only ever reads and
// writes the documents of one user.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Collection names
const (
	periodsCollection      = "finreport-periods"
	entriesCollection      = "finreport-entries"
	batchesCollection      = "finreport-batches"
	transactionsCollection = "finreport-transactions"
)

// Client wraps the Firestore and Auth clients of one Firebase app
type Client struct {
	Firestore *firestore.Client
	Auth      *auth.Client
	projectID string
}

// NewClient creates Firestore and Auth clients for projectID. Application
// Default Credentials are used unless credentialsFile is set.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*Client, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		firestoreClient.Close()
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}

	return &Client{
		Firestore: firestoreClient,
		Auth:      authClient,
		projectID: projectID,
	}, nil
}

// Close closes the Firestore client
func (c *Client) Close() error {
	return c.Firestore.Close()
}

// ProjectID returns the Firebase project the client is bound to
func (c *Client) ProjectID() string {
	return c.projectID
}

// ForUser returns a store scoped to one user's documents
func (c *Client) ForUser(userID string) *Store {
	return &Store{fs: c.Firestore, userID: userID}
}
