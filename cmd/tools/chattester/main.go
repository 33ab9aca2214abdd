// chattester exercises a running agent endpoint from the command line:
// it sends one text or voice turn over the websocket and prints every
// frame that comes back until the turn's voice message arrives.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/nova-companion/nova-go/internal/config"
	"github.com/nova-companion/nova-go/internal/model/event"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	serverURL := flag.String("url", cfg.ServerURL, "agent websocket URL")
	text := flag.String("text", "", "发送的文本内容")
	audioPath := flag.String("audio", "", "发送的语音文件路径 (与 -text 二选一)")
	timeout := flag.Duration("timeout", 30*time.Second, "等待回复的超时时间")
	flag.Parse()

	if (*text == "") == (*audioPath == "") {
		flag.Usage()
		log.Fatal("请通过 -text 或 -audio 指定一个测试输入")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("连接失败 %s: %v", *serverURL, err)
	}
	defer conn.Close()
	log.Printf("connected to %s", *serverURL)

	now := time.Now()
	if *text != "" {
		if err := conn.WriteJSON(event.NewTextSend(*text, now)); err != nil {
			log.Fatalf("发送文本失败: %v", err)
		}
	} else {
		audio, err := os.ReadFile(*audioPath)
		if err != nil {
			log.Fatalf("读取音频文件失败: %v", err)
		}
		if err := conn.WriteJSON(event.NewVoiceSend(audio, now)); err != nil {
			log.Fatalf("发送语音失败: %v", err)
		}
	}

	deadline := time.Now().Add(*timeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			log.Fatalf("设置超时失败: %v", err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("读取回复失败: %v", err)
		}

		ev, err := event.Decode(data)
		if err != nil {
			log.Printf("[WARN] 无法解析的回复帧: %v", err)
			continue
		}
		switch ev := ev.(type) {
		case event.MessageEvent:
			pretty, _ := json.Marshal(ev)
			log.Printf("message %s", pretty)
		case event.VoiceEvent:
			log.Printf("voice audio: %d bytes (base64 %d)", len(ev.Audio), base64.StdEncoding.EncodedLen(len(ev.Audio)))
			log.Print("turn complete")
			return
		}
	}
}
