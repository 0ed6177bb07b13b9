package window

const indexTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>imgdrop</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            margin: 0;
            min-height: 100vh;
        }
        #app {
            min-height: 100vh;
            box-sizing: border-box;
            padding: 20px;
            border: 2px solid transparent;
        }
        #app.dragging { border: 2px dashed #000; }
        .hint { color: #666; }
        .img-store {
            display: flex;
            flex-wrap: wrap;
            gap: 12px;
        }
        .img-store figure {
            margin: 0;
            width: 200px;
        }
        .img-store img {
            width: 200px;
            height: 200px;
            object-fit: cover;
            cursor: copy;
            border-radius: 4px;
        }
        .prompt { display: flex; gap: 4px; margin-top: 4px; }
        .prompt input { flex: 1; min-width: 0; }
        .toast { position: fixed; bottom: 16px; right: 16px; background: #333; color: #fff; padding: 8px 12px; border-radius: 4px; display: none; }
    </style>
</head>
<body>
    <div id="app">
        <p class="hint">Drop an image from <code>{{.TrustedHost}}</code> anywhere on this page. Click a thumbnail to copy it.
        {{if .AutoAccept}}Images are saved to <code>{{.SaveDir}}</code> automatically.{{else}}Saving asks for a name; files go to <code>{{.SaveDir}}</code>.{{end}}</p>
        <div class="img-store"></div>
    </div>
    <div class="toast"></div>
    <script>
    (function () {
        const app = document.querySelector('#app');
        const imgStore = document.querySelector('#app > .img-store');
        const toast = document.querySelector('.toast');
        const figures = new Map();

        function post(url, body) {
            return fetch(url, {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(body || {})
            });
        }

        function notify(text) {
            toast.textContent = text;
            toast.style.display = 'block';
            setTimeout(function () { toast.style.display = 'none'; }, 1500);
        }

        document.body.addEventListener('dragstart', function (e) {
            app.classList.remove('dragging');
            if (e.dataTransfer) e.dataTransfer.clearData();
        }, false);
        document.body.addEventListener('dragend', function () {
            app.classList.remove('dragging');
        });
        document.body.addEventListener('dragenter', function (e) {
            app.classList.add('dragging');
            e.preventDefault();
        }, false);
        document.body.addEventListener('dragleave', function (e) {
            app.classList.remove('dragging');
            e.preventDefault();
        });
        document.body.addEventListener('dragover', function (e) {
            app.classList.add('dragging');
            e.preventDefault();
        }, false);
        document.body.addEventListener('drop', function (e) {
            app.classList.remove('dragging');
            e.preventDefault();
            const data = {};
            if (e.dataTransfer) {
                for (const type of e.dataTransfer.types) {
                    data[type] = e.dataTransfer.getData(type);
                }
            }
            post('/api/drop', { data: data }).then(refresh);
        }, false);

        imgStore.addEventListener('click', function (e) {
            const slot = e.target.closest('[data-slot]');
            if (!slot || e.target.closest('.prompt')) return;
            post('/api/click', { tag: e.target.tagName, slot_id: slot.dataset.slot })
                .then(function (r) { return r.json(); })
                .then(function (r) { if (r.status === 'copied') notify('Copied to clipboard'); });
        }, false);

        function buildFigure(slot) {
            const fig = document.createElement('figure');
            fig.dataset.slot = slot.id;
            const img = document.createElement('img');
            img.dataset.slot = slot.id;
            fig.appendChild(img);
            const caption = document.createElement('figcaption');
            fig.appendChild(caption);
            return fig;
        }

        function renderPrompt(fig, slot) {
            let form = fig.querySelector('.prompt');
            if (!slot.prompt) {
                if (form) form.remove();
                return;
            }
            if (form) return;
            form = document.createElement('form');
            form.className = 'prompt';
            const input = document.createElement('input');
            input.value = slot.prompt.suggested_name;
            input.title = 'Saved as ' + slot.prompt.extensions.join(', ');
            const save = document.createElement('button');
            save.type = 'submit';
            save.textContent = 'Save';
            const cancel = document.createElement('button');
            cancel.type = 'button';
            cancel.textContent = 'Cancel';
            form.append(input, save, cancel);
            form.addEventListener('submit', function (e) {
                e.preventDefault();
                post('/api/slots/' + slot.id + '/save', { filename: input.value }).then(refresh);
            });
            cancel.addEventListener('click', function () {
                post('/api/slots/' + slot.id + '/cancel').then(refresh);
            });
            fig.appendChild(form);
        }

        function render(slots) {
            const live = new Set();
            slots.forEach(function (slot, i) {
                live.add(slot.id);
                let fig = figures.get(slot.id);
                if (!fig) {
                    fig = buildFigure(slot);
                    figures.set(slot.id, fig);
                }
                if (imgStore.children[i] !== fig) {
                    imgStore.insertBefore(fig, imgStore.children[i] || null);
                }
                const img = fig.querySelector('img');
                if (img.getAttribute('src') !== slot.image_url) img.setAttribute('src', slot.image_url);
                fig.querySelector('figcaption').textContent = slot.state === 'saved' ? slot.saved_path : '';
                renderPrompt(fig, slot);
            });
            for (const [id, fig] of figures) {
                if (!live.has(id)) {
                    fig.remove();
                    figures.delete(id);
                }
            }
        }

        function refresh() {
            return fetch('/api/slots')
                .then(function (r) { return r.json(); })
                .then(render)
                .catch(function (err) { console.error(err); });
        }

        refresh();
        setInterval(refresh, 1000);
    })();
    </script>
</body>
</html>
`
