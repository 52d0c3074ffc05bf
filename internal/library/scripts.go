package library

// Built-in meditation scripts, keyed by title.
var scripts = map[string]string{
	"5-Minute Mindfulness": `Take a deep breath in... and out. For the next five minutes, we will focus on the present moment. Find a comfortable position, either sitting or lying down. Close your eyes gently. Bring your attention to your breath. Notice the sensation of the air entering your nostrils... filling your lungs... and the gentle release as you exhale. Your mind may wander, and that's okay. When it does, gently guide it back to your breath. Notice any sounds around you without judgment. Just observe them as part of this moment. Feel the contact of your body with the surface beneath you. Feel the gentle rise and fall of your chest. You are safe. You are present. Continue to breathe, moment by moment. As we come to a close, slowly bring your awareness back to the room. Wiggle your fingers and toes. And when you're ready, gently open your eyes. Carry this sense of peace with you.`,
	"Body Scan": `Find a comfortable position lying on your back. Close your eyes and take a few deep breaths. We will now begin a body scan meditation. Bring your awareness to your toes on your left foot. Notice any sensations... warmth, coolness, tingling... without judgment. Now, move your attention to the sole of your foot... your heel... the top of your foot. Slowly, move your awareness up your left leg... to your calf... your shin... your knee... your thigh. Just observe. Now, bring your attention to your right foot, and repeat the process. Your toes... your entire foot... your lower leg... your knee... your thigh. Now, focus on your hips... your abdomen... your lower back. Notice the gentle movement with each breath. Bring your awareness to your chest and heart area. Then to your hands and fingers... up through your arms to your shoulders. Finally, bring your attention to your neck... your jaw... your face... your forehead. Let go of any tension you find. Now, feel your whole body, buzzing with a gentle energy, completely relaxed. Rest in this awareness for a few moments. When you are ready, gently begin to move and open your eyes.`,
}

// Themes offered when a sleep story is requested without a topic.
var storyThemes = []string{
	"A walk through an ancient forest",
	"Floating on a cloud at sunset",
	"A cozy cabin in the snowy mountains",
	"A gentle stream in a secret garden",
	"Stargazing from a quiet hilltop",
}
