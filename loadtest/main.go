package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go-chat-client/internal/api"
	"go-chat-client/internal/channel"
)

const (
	BaseURL   = "http://localhost:8080"
	PairCount = 250 // ⚠️ Start small (25 pairs = 50 users). Database might choke on 500 immediately.
	MsgCount  = 20  // Messages per user
)

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	// Pairs: user a of pair 0 talks to user b of pair 0, and so on.
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	client := api.NewClient(BaseURL)

	a := authenticate(client, fmt.Sprintf("u_%d_a", pairID), fmt.Sprintf("555%07d", pairID*2))
	b := authenticate(client, fmt.Sprintf("u_%d_b", pairID), fmt.Sprintf("555%07d", pairID*2+1))
	if a == nil || b == nil {
		return
	}

	// The client carries b's token after the second login; the chat is
	// created as a.
	client.SetToken(a.Token)
	chatID, err := client.FindOrCreateChat(context.Background(), a.UserID, fmt.Sprintf("555%07d", pairID*2+1))
	if err != nil {
		log.Printf("❌ Create Chat Failed [pair %d]: %v", pairID, err)
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, a, chatID)
	go spamChat(&wsWg, b, chatID)
	wsWg.Wait()
}

// authenticate registers (ignoring the already-exists error) and logs in.
func authenticate(client *api.Client, username, phone string) *api.LoginResponse {
	const pass = "password123"

	client.Register(context.Background(), &api.RegisterRequest{
		Name:     username,
		Username: username,
		PhoneNo:  phone,
		Password: pass,
	})

	res, err := client.Login(context.Background(), username, pass)
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return nil
	}
	return res
}

func spamChat(wg *sync.WaitGroup, auth *api.LoginResponse, chatID string) {
	defer wg.Done()

	conn, err := channel.Dial(BaseURL, auth.Token, auth.UserID, nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", auth.UserID, err)
		return
	}
	defer conn.Close()

	var received atomic.Int64
	conn.Subscribe(channel.EventNewMessage, func(json.RawMessage) {
		received.Add(1)
	})

	for i := 0; i < MsgCount; i++ {
		conn.Publish(channel.EventSendMessage, map[string]any{
			"chatId":      chatID,
			"senderId":    auth.UserID,
			"messageText": fmt.Sprintf("LoadTest Msg %d from %s", i, auth.UserID),
		})
		// Small sleep to keep localhost from bottlenecking instantly.
		time.Sleep(10 * time.Millisecond)
	}

	// Both sides send MsgCount each and every send echoes back, so a
	// healthy run drains close to 2*MsgCount.
	time.Sleep(2 * time.Second)
	log.Printf("✅ %s sent %d msgs, received %d", auth.UserID, MsgCount, received.Load())
}
