package queue

import "fmt"

func pendingKey(name string) string {
	return fmt.Sprintf("queue:%s:pending", name)
}

func inflightKey(name string) string {
	return fmt.Sprintf("queue:%s:inflight", name)
}

func dlqKey(name string) string {
	return fmt.Sprintf("queue:%s:dlq", name)
}

func messagePrefix(name string) string {
	return fmt.Sprintf("queue:%s:msg:", name)
}
