package shame

// fallbackInsults 生成失败或未配置模型时使用。
var fallbackInsults = []string{
	"I have the attention span of a gnat and the discipline of a toddler.",
	"Look at me, I'm a failure who can't even sit still for 10 minutes.",
	"I am physically incapable of doing hard work. Roast me.",
	"I just quit my work timer to look at memes. I will never be successful.",
	"My willpower is non-existent. I am destined for mediocrity.",
	"WARNING: I am a productivity coward who runs away from effort.",
	"I clicked 'Give Up' because I'm addicted to cheap dopamine.",
	"Imagine being so weak you can't focus for 20 minutes. Couldn't be me. Oh wait, it IS me.",
	"I am a slave to my notifications. Shame me.",
	"I traded my dreams for 30 seconds of Instagram. I am a clown.",
	"Pathetic. I just gave up immediately. Weak mindset.",
	"My ancestors survived wars, but I can't survive 15 minutes of studying.",
	"I am the reason society is collapsing. Zero discipline.",
	"I panicked and quit because actual work is too scary for me.",
	"I literally have no excuse. I'm just lazy.",
	"Certified quitter. Please unfollow me, I don't deserve friends.",
}

// FallbackInsults 返回内置文案的副本。
func FallbackInsults() []string {
	return append([]string(nil), fallbackInsults...)
}

// IsFallback 判断文案是否来自内置列表。
func IsFallback(text string) bool {
	for _, insult := range fallbackInsults {
		if insult == text {
			return true
		}
	}
	return false
}
