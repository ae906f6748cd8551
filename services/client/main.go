package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/tunegraph-io/tunegraph/lib/client"
	"github.com/tunegraph-io/tunegraph/lib/codec"
	"github.com/tunegraph-io/tunegraph/lib/config"
	"github.com/tunegraph-io/tunegraph/lib/logging"
	"github.com/tunegraph-io/tunegraph/lib/sessions"
	"github.com/tunegraph-io/tunegraph/lib/signing"
)

func main() {
	ctx := context.Background()

	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	if err := logging.InitLogger(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	secrets := sessions.NewFileStore(config.GetPath("session.json"))

	c, err := client.New(cfg, secrets)
	if err != nil {
		log.Fatalf("Failed to initialize client: %v", err)
	}

	if _, err := c.Restore(ctx); err == nil {
		logging.Infof("Restored previous session")
	}

	RunCommandWatcher(ctx, c)
}

func RunCommandWatcher(ctx context.Context, c *client.Client) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		Cleanup(c)
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		if !scanner.Scan() {
			Cleanup(c)
			return
		}

		command := strings.TrimSpace(scanner.Text())
		segments := strings.Fields(command)
		if len(segments) == 0 {
			continue
		}

		switch segments[0] {
		case "help":
			log.Println("Available Commands:")
			log.Println("generate")
			log.Println("login <nsec>")
			log.Println("bunker <bunker-url> <client-secret>")
			log.Println("whoami")
			log.Println("profile <npub|hex>")
			log.Println("tracks <npub|hex>")
			log.Println("playlists <npub|hex>")
			log.Println("recent [limit]")
			log.Println("like <kind:pubkey:d> <event-id>")
			log.Println("unlike <kind:pubkey:d>")
			log.Println("liked <kind:pubkey:d>")
			log.Println("retry")
			log.Println("stats")
			log.Println("logout")
			log.Println("shutdown")
		case "generate":
			GenerateIdentity(ctx, c)
		case "login":
			if len(segments) < 2 {
				log.Println("Usage: login <nsec>")
				continue
			}
			Login(ctx, c, signing.MethodLocal, segments[1])
		case "bunker":
			if len(segments) < 3 {
				log.Println("Usage: bunker <bunker-url> <client-secret>")
				continue
			}
			Login(ctx, c, signing.MethodBunker, sessions.BunkerCredential(segments[2], segments[1]))
		case "whoami":
			WhoAmI(ctx, c)
		case "profile":
			if len(segments) < 2 {
				log.Println("Usage: profile <npub|hex>")
				continue
			}
			ShowProfile(ctx, c, segments[1])
		case "tracks":
			if len(segments) < 2 {
				log.Println("Usage: tracks <npub|hex>")
				continue
			}
			ListTracks(ctx, c, segments[1])
		case "playlists":
			if len(segments) < 2 {
				log.Println("Usage: playlists <npub|hex>")
				continue
			}
			ListPlaylists(ctx, c, segments[1])
		case "recent":
			limit := 20
			if len(segments) > 1 {
				if n, err := strconv.Atoi(segments[1]); err == nil {
					limit = n
				}
			}
			ListRecent(ctx, c, limit)
		case "like":
			if len(segments) < 3 {
				log.Println("Usage: like <kind:pubkey:d> <event-id>")
				continue
			}
			Like(ctx, c, segments[1], segments[2])
		case "unlike":
			if len(segments) < 2 {
				log.Println("Usage: unlike <kind:pubkey:d>")
				continue
			}
			Unlike(ctx, c, segments[1])
		case "liked":
			if len(segments) < 2 {
				log.Println("Usage: liked <kind:pubkey:d>")
				continue
			}
			Liked(ctx, c, segments[1])
		case "retry":
			RetryPending(ctx, c)
		case "stats":
			ShowStats(c)
		case "logout":
			if err := c.Logout(ctx); err != nil {
				log.Printf("Logout failed: %v\n", err)
			} else {
				log.Println("Logged out")
			}
		case "shutdown":
			log.Println("Shutting down")
			Cleanup(c)
			return
		default:
			log.Printf("Unknown command: %s\n", command)
		}
	}
}

func Cleanup(c *client.Client) {
	if err := c.Close(); err != nil {
		log.Printf("Shutdown error: %v\n", err)
	}
}

func GenerateIdentity(ctx context.Context, c *client.Client) {
	signer, err := signing.GenerateLocalSigner()
	if err != nil {
		log.Printf("Failed to generate identity: %v\n", err)
		return
	}

	npub, err := signer.Npub()
	if err != nil {
		log.Printf("Failed to encode public key: %v\n", err)
		return
	}

	log.Printf("Generated identity %s\n", npub)

	if _, err := c.Login(ctx, signing.MethodLocal, signer.SecretKey()); err != nil {
		log.Printf("Failed to activate session: %v\n", err)
	}
}

func Login(ctx context.Context, c *client.Client, method signing.Method, credential string) {
	loginCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	signer, err := c.Login(loginCtx, method, credential)
	if err != nil {
		log.Printf("Login failed: %v\n", err)
		return
	}

	pubkey, err := signer.PublicKey(loginCtx)
	if err != nil {
		log.Printf("Login succeeded but public key unavailable: %v\n", err)
		return
	}
	log.Printf("Logged in as %s\n", pubkey)
}

func WhoAmI(ctx context.Context, c *client.Client) {
	signer, err := c.Sessions.Signer()
	if err != nil {
		log.Println("Not logged in")
		return
	}

	pubkey, err := signer.PublicKey(ctx)
	if err != nil {
		log.Printf("Failed to get public key: %v\n", err)
		return
	}

	npub, _ := nip19.EncodePublicKey(pubkey)
	log.Printf("%s (%s)\n", pubkey, npub)
}

func ShowProfile(ctx context.Context, c *client.Client, author string) {
	pubkey, err := decodeAuthor(author)
	if err != nil {
		log.Printf("Bad author: %v\n", err)
		return
	}

	profile, err := c.Profile(ctx, pubkey)
	if err != nil {
		log.Printf("Failed to fetch profile: %v\n", err)
		return
	}

	name := profile.DisplayName
	if name == "" {
		name = profile.Name
	}
	log.Printf("%s\n", name)
	if profile.About != "" {
		log.Printf("  %s\n", profile.About)
	}
	if profile.NIP05 != "" {
		log.Printf("  %s\n", profile.NIP05)
	}
}

func ListTracks(ctx context.Context, c *client.Client, author string) {
	pubkey, err := decodeAuthor(author)
	if err != nil {
		log.Printf("Bad author: %v\n", err)
		return
	}

	tracks, err := c.TracksByArtist(ctx, pubkey)
	if err != nil {
		log.Printf("Failed to fetch tracks: %v\n", err)
		return
	}

	for _, track := range tracks {
		log.Printf("%s  %s - %s\n", track.Address(), track.Artist, track.Title)
	}
	log.Printf("%d tracks\n", len(tracks))
}

func ListPlaylists(ctx context.Context, c *client.Client, author string) {
	pubkey, err := decodeAuthor(author)
	if err != nil {
		log.Printf("Bad author: %v\n", err)
		return
	}

	playlists, err := c.PlaylistsByAuthor(ctx, pubkey)
	if err != nil {
		log.Printf("Failed to fetch playlists: %v\n", err)
		return
	}

	for _, playlist := range playlists {
		log.Printf("%s  %s (%d tracks)\n", playlist.Address(), playlist.Title, len(playlist.Tracks))
	}
	log.Printf("%d playlists\n", len(playlists))
}

func ListRecent(ctx context.Context, c *client.Client, limit int) {
	tracks, err := c.RecentTracks(ctx, limit)
	if err != nil {
		log.Printf("Failed to fetch recent tracks: %v\n", err)
		return
	}

	for _, track := range tracks {
		log.Printf("%s  %s - %s\n", track.Address(), track.Artist, track.Title)
	}
}

func Like(ctx context.Context, c *client.Client, address, eventID string) {
	addr, err := codec.ParseAddress(address)
	if err != nil {
		log.Printf("Bad address: %v\n", err)
		return
	}

	if err := c.Like(ctx, addr, eventID); err != nil {
		log.Printf("Like failed: %v\n", err)
		return
	}
	log.Println("Liked")
}

func Unlike(ctx context.Context, c *client.Client, address string) {
	addr, err := codec.ParseAddress(address)
	if err != nil {
		log.Printf("Bad address: %v\n", err)
		return
	}

	if err := c.Unlike(ctx, addr); err != nil {
		log.Printf("Unlike failed: %v\n", err)
		return
	}
	log.Println("Unliked")
}

func Liked(ctx context.Context, c *client.Client, address string) {
	addr, err := codec.ParseAddress(address)
	if err != nil {
		log.Printf("Bad address: %v\n", err)
		return
	}

	liked, err := c.IsLiked(ctx, addr)
	if err != nil {
		log.Printf("Check failed: %v\n", err)
		return
	}
	log.Printf("Liked: %v\n", liked)
}

func RetryPending(ctx context.Context, c *client.Client) {
	result, err := c.RetryPending(ctx)
	if err != nil {
		log.Printf("Retry sweep failed: %v\n", err)
		return
	}
	log.Printf("Confirmed %d, retried %d, evicted %d\n", result.Confirmed, result.Retried, result.Evicted)
}

func ShowStats(c *client.Client) {
	stats, err := c.CacheStats()
	if err != nil {
		log.Printf("Failed to read cache stats: %v\n", err)
		return
	}
	log.Printf("Profiles: %d, Tracks: %d, Playlists: %d, Queries: %d\n",
		stats.Profiles, stats.Tracks, stats.Playlists, stats.Queries)
}

func decodeAuthor(author string) (string, error) {
	if strings.HasPrefix(author, "npub") {
		prefix, value, err := nip19.Decode(author)
		if err != nil {
			return "", err
		}
		if prefix != "npub" {
			return "", fmt.Errorf("expected npub, got %s", prefix)
		}
		return value.(string), nil
	}

	if len(author) != 64 {
		return "", fmt.Errorf("expected npub or 64-char hex public key")
	}
	return strings.ToLower(author), nil
}
