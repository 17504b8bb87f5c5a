package config

// Example returns a commented starter configuration.
func Example() string {
	return exampleHCL
}

const exampleHCL = `# Homelab configuration.
# Copy to /etc/homelab/homelab.hcl and adjust.

router {
  # Gateway web UI endpoint. The stock Technicolor firmware answers on
  # plain HTTP inside the LAN.
  url      = "http://192.168.0.1"
  username = "admin"

  # Keep the real password out of the file:
  #   export ROUTER_PASSWORD=...
  password = env("ROUTER_PASSWORD")

  # read_timeout  = "10s"
  # write_timeout = "15s"
}

monitor {
  # How often to poll the host table.
  interval = "30s"

  # Devices whose name matches one of these substrings (case-insensitive)
  # trigger arrival/departure notifications. Everything is still written
  # to the event log.
  notify_patterns = ["Redmi", "iPhone"]

  # Send a tracked-device summary every N cycles (0 disables).
  summary_every = 10

  # event_log = "/var/lib/homelab/presence_log.csv"
}

# Optional ICMP fallback for phones that drop off WiFi in deep sleep.
# ping {
#   enabled  = true
#   timeout  = "2s"
#   attempts = 3
#   targets = {
#     "Redmi Note" = "192.168.0.23"
#   }
# }

allowlist {
  # path = "/var/lib/homelab/allowed_devices.json"

  # Infrastructure that must never be blocked. The machine running this
  # tool is detected and added automatically.
  device "Living Room AP" {
    mac    = "AA:BB:CC:11:22:33"
    reason = "access point"
  }
  device "Hallway AP" {
    mac    = "AA:BB:CC:44:55:66"
    reason = "access point"
  }
}

lockdown {
  # state_path = "/var/lib/homelab/lockdown_state.json"
}

notifications {
  enabled = true

  channel "family-telegram" {
    type    = "telegram"
    token   = env("TELEGRAM_BOT_TOKEN")
    chat_id = "123456789"
  }

  # channel "ops" {
  #   type = "webhook"
  #   url  = "https://example.com/hook"
  #   headers = {
  #     "Authorization" = "Bearer ..."
  #   }
  #   min_level = "warning"
  # }

  # channel "phone" {
  #   type  = "ntfy"
  #   topic = "homelab-alerts"
  # }
}

# Remote control over Telegram. Commands from other chats are ignored.
bot {
  enabled = true
  token   = env("TELEGRAM_BOT_TOKEN")
  chat_id = "123456789"
  # audit_log = "/var/lib/homelab/bot_audit.db"
}

# metrics {
#   enabled = true
#   listen  = "127.0.0.1:9321"
# }

logging {
  level = "info"
  # file = "/var/log/homelab/monitor.log"
  # json = false
}
`
